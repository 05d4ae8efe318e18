package render

const serverTemplate = `[Interface]
#_GenKeyTime = <SERVER_KEY_TIME>
PrivateKey = <SERVER_PRIVATE_KEY>
#_PublicKey = <SERVER_PUBLIC_KEY>
Address = <SERVER_ADDR>
ListenPort = <SERVER_PORT>
Jc = <JC>
Jmin = <JMIN>
Jmax = <JMAX>
S1 = <S1>
S2 = <S2>
H1 = <H1>
H2 = <H2>
H3 = <H3>
H4 = <H4>

PostUp = iptables -A FORWARD -i <INTERFACE> -j ACCEPT --wait 10 --wait-interval 50; iptables -t nat -A POSTROUTING -o <ADAPTER> -j MASQUERADE --wait 10 --wait-interval 50
PostDown = iptables -D FORWARD -i <INTERFACE> -j ACCEPT --wait 10 --wait-interval 50; iptables -t nat -D POSTROUTING -o <ADAPTER> -j MASQUERADE --wait 10 --wait-interval 50
`

const clientTemplate = `[Interface]
#_GenKeyTime = <CLIENT_KEY_TIME>
PrivateKey = <CLIENT_PRIVATE_KEY>
#_PublicKey = <CLIENT_PUBLIC_KEY>
Address = <CLIENT_TUNNEL_IP>
DNS = <DNS>
Jc = <JC>
Jmin = <JMIN>
Jmax = <JMAX>
S1 = <S1>
S2 = <S2>
H1 = <H1>
H2 = <H2>
H3 = <H3>
H4 = <H4>

[Peer]
PublicKey = <SERVER_PUBLIC_KEY>
PresharedKey = <PRESHARED_KEY>
AllowedIPs = 0.0.0.0/0
Endpoint = <SERVER_ADDR>:<SERVER_PORT>
PersistentKeepalive = <KEEPALIVE>
`
